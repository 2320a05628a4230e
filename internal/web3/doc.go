// Package web3 holds the Movement network definitions and the chain client
// contract used by the plugin actions: entry-function calls, ledger
// information, balances and explorer links. Concrete clients live in
// sub-packages.
package web3
