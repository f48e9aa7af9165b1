//go:build authzdebug

package authz

const debugAssertions = true
