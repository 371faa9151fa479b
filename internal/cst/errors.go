package cst

import "errors"

// ErrSelectorNotFound indicates a selector resolved to zero nodes.
var ErrSelectorNotFound = errors.New("cst: selector matched no node")

// ErrSelectorAmbiguous indicates a selector resolved to more than one
// node.
var ErrSelectorAmbiguous = errors.New("cst: selector matched multiple nodes")
