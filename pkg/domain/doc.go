// Package domain contains the core types shared across modguard: declared
// modules and their tags, dependency edges, rule decisions and check
// reports. It depends on nothing else in the repository.
package domain
