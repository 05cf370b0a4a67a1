// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "regexp"

var subscriberRe = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// IsValidSubscriberID returns true if id can be used as a bus topic suffix.
func IsValidSubscriberID(id SubscriberID) bool {
	return subscriberRe.MatchString(string(id))
}
