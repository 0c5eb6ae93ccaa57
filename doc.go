// Package noodl provides the action chain engine behind NOODL pages.
//
// The engine is in package 'core', and some command-line tools are in `cmd`.
//
// A NOODL page declares, in JSON or YAML, what should happen when a
// user (or some data) triggers an event: a list of action objects
// such as "goto", "evalObject", "emit", "popUp", and "builtIn".  The
// core package turns such a list into an ActionChain, binds each
// action to the handlers an application registered, and runs the
// actions one at a time.
package noodl
