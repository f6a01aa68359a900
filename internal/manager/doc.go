// Package manager ties the bridge to the retry registry: it starts and
// aborts transfers by task id and files failed transfers for a later retry.
package manager
