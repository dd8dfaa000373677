package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      New(InvalidArgument, "empty seed set"),
			expected: "INVALID_ARGUMENT: empty seed set",
		},
		{
			name:     "with uuid",
			err:      New(NotFound, "node not found").WithUUID("abc"),
			expected: "NOT_FOUND: node not found (uuid=abc)",
		},
		{
			name:     "with uuid and field",
			err:      New(LicensingError, "license %q not allowed", "GPL").WithUUID("abc").WithField("source.license"),
			expected: `LICENSING_ERROR: license "GPL" not allowed (uuid=abc, field=source.license)`,
		},
		{
			name:     "with cause",
			err:      Wrap(IOError, errors.New("disk full"), "write archive"),
			expected: "IO_ERROR: write archive: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := New(CorruptArchive, "bad link")
	wrapped := fmt.Errorf("import: %w", base)

	assert.Equal(t, CorruptArchive, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CorruptArchive))
	assert.False(t, Is(wrapped, IOError))
	assert.False(t, Is(nil, CorruptArchive))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(ExportError, cause, "read content")
	assert.ErrorIs(t, err, cause)
}
