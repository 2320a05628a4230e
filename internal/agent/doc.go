// Package agent hosts the conversational runtime: it keeps room memory,
// composes prompt state from the character, selects and runs plugin actions
// and falls back to a persona reply when no action claims a message.
package agent
