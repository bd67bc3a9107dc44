// Package rules evaluates dependency edges against the layering and
// visibility rules. The builtin rules implement the fixed rule set
// (self-dependency, same-domain layer ordering, cross-domain visibility);
// configured expression rules and Rego policy modules run afterwards and
// can only tighten the verdict, never loosen it.
package rules
