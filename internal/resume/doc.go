// Package resume decides whether a request starts a new stream or continues an
// interrupted one, and builds the conversation sent upstream in either case.
//
// When earlier output exists the conversation is extended with two turns: the
// earlier output as an assistant turn, then a user turn asking the model to carry
// on from exactly that point. Earlier output is the stored text, or the client's
// hint when no session is stored or the hint extends the stored text. A shorter
// or conflicting hint never causes output to be stored twice.
package resume
