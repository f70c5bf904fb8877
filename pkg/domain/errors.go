package domain

import "errors"

// ErrNoSuchSession is returned by mutation operations when the target key does
// not exist. Lookups signal absence as a nil session instead: "missing" is the
// expected outcome of a get, but a precondition failure for a mutation.
var ErrNoSuchSession = errors.New("no such session")
