package mot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WriteTracksCSV writes track histories of every stored track to w.
// Format: session;id;active;track where track is x,y|x,y|...
func (tracker *ReIDTracker) WriteTracksCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	err := writer.Write([]string{"session", "id", "active", "track"})
	if err != nil {
		return errors.Wrap(err, "Can't write CSV header")
	}
	session := tracker.sessionID.String()
	for _, track := range tracker.store.All() {
		history := track.GetTrack()
		data := make([]string, len(history))
		for idx, pt := range history {
			data[idx] = fmt.Sprintf("%f,%f", pt.X, pt.Y)
		}
		dataStr := strings.Join(data, "|")
		err = writer.Write([]string{session, strconv.FormatInt(track.id, 10), strconv.FormatBool(track.active), dataStr})
		if err != nil {
			return errors.Wrapf(err, "Can't write track %d", track.id)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "Can't flush CSV")
}
