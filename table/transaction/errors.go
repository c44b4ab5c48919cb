package transaction

import (
	"fmt"

	"github.com/pingcap-incubator/tinytable/table/metadata"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap/errors"
)

// ErrWriteConflict is returned when the current writer touched file groups another operation also touched and the
// overlap cannot be tolerated. The current write must be aborted.
type ErrWriteConflict struct {
	Current     timeline.Instant
	Conflicting timeline.Instant
	FileGroups  []metadata.FileGroupID
}

func (e *ErrWriteConflict) Error() string {
	return fmt.Sprintf("write conflict: %s overlaps %s instant %s on file groups %v",
		e.Current, e.Conflicting.Action, e.Conflicting, e.FileGroups)
}

// ErrMetadataLoad is returned when the file groups of an instant cannot be determined. It is never treated as "no
// files touched".
type ErrMetadataLoad struct {
	Instant timeline.Instant
	Err     error
}

func (e *ErrMetadataLoad) Error() string {
	return fmt.Sprintf("unable to load metadata of %s: %v", e.Instant, e.Err)
}

func (e *ErrMetadataLoad) Unwrap() error {
	return e.Err
}

// IsWriteConflict reports whether the cause of err is a write conflict.
func IsWriteConflict(err error) bool {
	_, ok := errors.Cause(err).(*ErrWriteConflict)
	return ok
}
