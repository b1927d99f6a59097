package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"time"
)

// JSONLogger writes one JSON object per line to Out (stdout if nil).
type JSONLogger struct {
	Out io.Writer
}

func (l *JSONLogger) log(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"level": level,
		"msg":   msg,
		"time":  time.Now().UTC().Format(time.RFC3339),
	}

	maps.Copy(entry, fields)

	out := l.Out
	if out == nil {
		out = os.Stdout
	}

	b, _ := json.Marshal(entry)
	fmt.Fprintln(out, string(b))
}

func (l *JSONLogger) Info(msg string, fields map[string]any) {
	l.log("INFO", msg, fields)
}

func (l *JSONLogger) Error(msg string, fields map[string]any) {
	l.log("ERROR", msg, fields)
}
