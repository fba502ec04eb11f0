package app

import "errors"

var errBillingDisabled = errors.New("billing service not configured")
