package rules

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/modguard/modguard/pkg/domain"
)

// PolicyOptions control PolicyEngine construction.
type PolicyOptions struct {
	// Entrypoint is the deny rule path. Empty selects "modguard/deny".
	Entrypoint string
	// Modules maps module names to Rego source.
	Modules map[string]string
	// CacheMaxEntries bounds the decision cache (LRU). Zero selects the
	// default size; negative disables caching.
	CacheMaxEntries int
}

const (
	defaultEntrypoint    = "modguard/deny"
	defaultCacheCapacity = 4096
)

// PolicyEngine evaluates configured Rego modules against edge attributes.
// The entrypoint must produce a set or list of reason strings; a non-empty
// result denies the edge. Engines are immutable once built; config reloads
// construct a fresh engine, which also discards the decision cache.
type PolicyEngine struct {
	entrypoint string
	prepared   rego.PreparedEvalQuery
	cache      *denyCache
}

// NewPolicyEngine parses and compiles the supplied Rego modules. Syntax and
// compile errors surface here, before any edge is evaluated.
func NewPolicyEngine(ctx context.Context, opts PolicyOptions) (*PolicyEngine, error) {
	if len(opts.Modules) == 0 {
		return nil, fmt.Errorf("%w: at least one rego module required", domain.ErrPolicyCompile)
	}

	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	moduleOrder := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	regoOpts := make([]func(*rego.Rego), 0, len(moduleOrder)+1)
	regoOpts = append(regoOpts, rego.Query("data."+strings.ReplaceAll(entry, "/", ".")))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("%w: parse %q: %v", domain.ErrPolicyCompile, name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPolicyCompile, err)
	}

	maxEntries := opts.CacheMaxEntries
	switch {
	case maxEntries == 0:
		maxEntries = defaultCacheCapacity
	case maxEntries < 0:
		maxEntries = 0
	}
	var cache *denyCache
	if maxEntries > 0 {
		cache = newDenyCache(maxEntries)
	}

	return &PolicyEngine{
		entrypoint: entry,
		prepared:   prepared,
		cache:      cache,
	}, nil
}

// Deny evaluates the policy for one edge scope and returns the deny reasons,
// empty when the policy permits the edge.
func (p *PolicyEngine) Deny(ctx context.Context, scope map[string]any) ([]string, error) {
	cacheKey := p.cacheKey(scope)
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			return append([]string(nil), cached...), nil
		}
	}

	results, err := p.prepared.Eval(ctx, rego.EvalInput(nestScope(scope)))
	if err != nil {
		return nil, fmt.Errorf("rego eval: %w", err)
	}

	reasons, err := extractReasons(results)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(cacheKey, reasons)
	}
	return reasons, nil
}

func extractReasons(results rego.ResultSet) ([]string, error) {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	raw := results[0].Expressions[0].Value
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("rego eval: deny must be a set of strings, got %T", raw)
	}

	reasons := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("rego eval: deny entry must be string, got %T", item)
		}
		reasons = append(reasons, text)
	}
	sort.Strings(reasons)
	return reasons, nil
}

// nestScope converts the flat dotted attribute map into the nested shape
// rego policies see as input (input.from.layer, input.to.domain, ...).
func nestScope(scope map[string]any) map[string]any {
	nested := map[string]any{}
	for key, value := range scope {
		parts := strings.Split(key, ".")
		cur := nested
		for i, part := range parts {
			if i == len(parts)-1 {
				// A leaf may collide with an earlier branch (layer vs
				// layer.rank); keep both by storing the rank under the branch.
				if branch, ok := cur[part].(map[string]any); ok {
					branch["value"] = value
				} else {
					cur[part] = value
				}
				continue
			}
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				if existing, has := cur[part]; has {
					next["value"] = existing
				}
				cur[part] = next
			}
			cur = next
		}
	}
	return nested
}

func (p *PolicyEngine) cacheKey(scope map[string]any) string {
	keys := make([]string, 0, len(scope))
	for k := range scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	writeCacheKeyField(h, p.entrypoint)
	for _, k := range keys {
		writeCacheKeyField(h, k)
		writeCacheKeyField(h, fmt.Sprint(scope[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeCacheKeyField writes a field followed by a null delimiter for
// unambiguous field separation.
func writeCacheKeyField(h hash.Hash, value string) {
	h.Write([]byte(value))
	h.Write([]byte{0})
}

type denyCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type denyItem struct {
	key     string
	reasons []string
}

func newDenyCache(capacity int) *denyCache {
	return &denyCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *denyCache) Get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(denyItem).reasons, true
}

func (c *denyCache) Add(key string, reasons []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = denyItem{key: key, reasons: reasons}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(denyItem{key: key, reasons: reasons})
	c.entries[key] = elem

	if c.order.Len() <= c.max {
		return
	}
	tail := c.order.Back()
	if tail != nil {
		c.order.Remove(tail)
		delete(c.entries, tail.Value.(denyItem).key)
	}
}
