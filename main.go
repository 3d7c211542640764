// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/rentworks/access-service/cmd"
)

func main() {
	cmd.Execute()
}
