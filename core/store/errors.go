package store

import "errors"

// ErrConflict signals a lost compare-and-set or claim race. Callers surface
// it distinctly from not-found so UIs can offer "someone else has this".
var ErrConflict = errors.New("conflict")
