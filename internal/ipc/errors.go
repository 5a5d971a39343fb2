package ipc

import (
	"errors"
	"strings"

	"conveyor/internal/services"
)

// encodeError flattens err to "[kind] message" for the wire.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New("[" + services.KindOf(err) + "] " + err.Error())
}

// decodeError rebuilds a marked error from a server error string.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "[") {
		return err
	}
	end := strings.Index(msg, "] ")
	if end < 0 {
		return err
	}
	return services.FromKind(msg[1:end], msg[end+2:])
}
