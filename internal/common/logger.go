// Copyright (c) 2023, Circle Internet Financial, LTD. All rights reserved.
//
//  SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package common holds cross-cutting helpers shared by every EchoLock
// component: the structured logger, the Clock capability port, and
// small constant-time/zeroize primitives that do not belong to any one
// domain package.
package common

import (
	logging "github.com/ipfs/go-log"
	"go.uber.org/zap"
)

// Logger is the package-level structured logger. Components log
// through it rather than constructing their own, so every EchoLock
// process shares one sink and one log level.
var Logger *zap.SugaredLogger = logging.Logger("echolock")

// SetLogLevel adjusts the verbosity of the "echolock" subsystem. Valid
// values are "debug", "info", "warn", "error".
func SetLogLevel(level string) error {
	return logging.SetLogLevel("echolock", level)
}
