// SPDX-License-Identifier: MPL-2.0

package main

import cmd "aicage-cli/cmd/aicage"

func main() {
	cmd.Execute()
}
