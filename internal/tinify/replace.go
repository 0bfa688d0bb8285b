package tinify

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// replaceFile 先把 body 完整写入同目录的临时文件，成功后再 rename 覆盖 target，
// 任何阶段失败都会清理临时文件且不触碰原文件。原文件的权限位会被保留。
func replaceFile(ctx context.Context, target string, body io.Reader) (int64, error) {
	info, err := os.Stat(target)
	if err != nil {
		return 0, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(target), ".tinyimg-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	if err == nil {
		err = tempFile.Chmod(info.Mode().Perm())
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return 0, err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return 0, err
	}
	return written, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
