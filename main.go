/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/contactsbook/identity/cmd"

func main() {
	cmd.Execute()
}
