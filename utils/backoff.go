/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns an exponential backoff duration for the given retry
// attempt: base, 2*base, 4*base, ... capped at maxBackoff. Up to half of the
// base step is added as jitter so replicas reconnecting to the same backend
// spread out. The result never exceeds maxBackoff.
func CalculateBackoff(retryCount int, base, maxBackoff time.Duration) time.Duration {
	if retryCount <= 0 || base <= 0 {
		return 0
	}
	shift := retryCount - 1
	if shift > 30 {
		shift = 30
	}
	d := base << uint(shift)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Float64() * float64(base) / 2)
	if d+jitter > maxBackoff {
		return maxBackoff
	}
	return d + jitter
}
