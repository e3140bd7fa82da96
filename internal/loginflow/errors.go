package loginflow

import "errors"

// ErrTooManyCharacters describes a server that advertises more than one
// character. Login does not return it: the CharacterList handler logs a
// warning for a count above one, decodes only the first entry, and leaves
// the remaining entries unparsed.
var ErrTooManyCharacters = errors.New("loginflow: server advertised more than one character, only the first is supported")
