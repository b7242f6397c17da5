// Package runner executes chains.
//
// Three execution modes are provided:
//
//   - Run threads an accumulator through the steps of a chain, in order. Every
//     step sees the initial input plus the values of all the steps before it.
//     The first failing step aborts the run and no accumulator is returned.
//   - RunTuple runs each step against its own input, index aligned, with no
//     data flowing between steps. Steps may run concurrently; the output record
//     is assembled in step order once every step finished.
//   - Dispatcher.RunByTag picks the chain registered for the tag of an input and
//     runs it with the input as the initial accumulator.
//
// Effect steps resolve their capability from the runner Provider every time they
// run. A missing capability is a configuration error (*chain.ConfigError); an
// error returned by a capability is handed back to the caller as is.
package runner
