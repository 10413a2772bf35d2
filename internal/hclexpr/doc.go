// Package hclexpr holds what HCL expressions in flowbridge share: the
// function table, and a static check that finds unknown variables and
// functions before anything is evaluated.
package hclexpr
