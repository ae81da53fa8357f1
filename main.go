/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "pearlbot/cmd"

func main() {
	cmd.Execute()
}
