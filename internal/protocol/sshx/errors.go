package sshx

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/portico-labs/portico/internal/protocol"
)

// mapSFTPError translates SFTP status and transport failures into coded
// protocol errors so callers never have to inspect server message text.
func mapSFTPError(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.WrapError(protocol.CodeTimeout, op, path, err)
	case errors.Is(err, sftp.ErrSshFxNoSuchFile), errors.Is(err, os.ErrNotExist):
		return protocol.WrapError(protocol.CodeNotFound, op, path, err)
	case errors.Is(err, sftp.ErrSshFxPermissionDenied), errors.Is(err, os.ErrPermission):
		return protocol.WrapError(protocol.CodePermission, op, path, err)
	case errors.Is(err, sftp.ErrSshFxNoConnection),
		errors.Is(err, sftp.ErrSshFxConnectionLost),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return protocol.WrapError(protocol.CodeSessionClosed, op, path, err)
	default:
		return protocol.WrapError(protocol.CodeInternal, op, path, err)
	}
}

// mapLocalError translates local filesystem failures seen during transfers.
func mapLocalError(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return protocol.WrapError(protocol.CodeNotFound, op, path, err)
	case errors.Is(err, os.ErrExist):
		return protocol.WrapError(protocol.CodeAlreadyExists, op, path, err)
	case errors.Is(err, os.ErrPermission):
		return protocol.WrapError(protocol.CodePermission, op, path, err)
	default:
		return protocol.WrapError(protocol.CodeInternal, op, path, err)
	}
}
