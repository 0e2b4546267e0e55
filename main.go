// Command glci is the Global Liquidity & Credit Index analytics pipeline CLI.
package main

import "github.com/wuchris/glci/cmd"

func main() {
	cmd.Execute()
}
