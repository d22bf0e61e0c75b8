package otoaudio

import (
	"errors"
	"fmt"
	"io"

	"github.com/dhowden/tag"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// checkContainer rejects files whose tags identify a container the player cannot decode.
// Untagged streams are let through to the MP3 decoder, which has the final say.
func checkContainer(r io.ReadSeeker) (tag.FileType, error) {
	_, fileType, err := tag.Identify(r)
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		return tag.UnknownFileType, seekErr
	}

	switch {
	case errors.Is(err, tag.ErrNoTagsFound):
		return tag.UnknownFileType, nil
	case err != nil:
		return tag.UnknownFileType, err
	case fileType == tag.MP3 || fileType == tag.UnknownFileType:
		return fileType, nil
	default:
		return fileType, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, fileType)
	}
}
