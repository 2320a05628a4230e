// Package llm contains the model client contract used by the agent runtime,
// helpers for pulling JSON objects out of model output, and a rate limiting
// wrapper. Provider implementations live in sub-packages.
package llm
