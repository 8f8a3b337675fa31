package storage

import "errors"

var (
	// ErrAccountNotFound is returned when a proxy account is not found
	ErrAccountNotFound = errors.New("proxy account not found")

	// ErrBindingNotFound is returned when a model binding is not found
	ErrBindingNotFound = errors.New("model binding not found")

	// ErrRuleNotFound is returned when a routing rule is not found
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrThresholdNotFound is returned when a cost threshold is not found
	ErrThresholdNotFound = errors.New("cost threshold not found")

	// ErrEventNotFound is returned when a failover event is not found
	ErrEventNotFound = errors.New("failover event not found")
)
