package repository

import "errors"

// ErrDuplicateArchive signals that the sample already has an archive record.
// Missing rows and lost status races are reported as sql.ErrNoRows.
var ErrDuplicateArchive = errors.New("sample already archived")
