// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import "errors"

// ErrInvalidThreshold is returned when a witness set declares k outside
// [1, N].
var ErrInvalidThreshold = errors.New("witness set: threshold k must satisfy 1 <= k <= n")
