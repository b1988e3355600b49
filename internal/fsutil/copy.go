// Package fsutil는 템플릿/모듈 디렉토리 복사를 담당합니다.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree는 src 아래의 모든 파일/디렉토리를 dst로 복사합니다.
// skipExisting이 true면 dst에 이미 존재하는 파일은 덮어쓰지 않습니다.
func CopyTree(src, dst string, skipExisting bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			// 디렉토리는 항상 만들어야 하위 파일을 채울 수 있음
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)
		}

		if skipExisting {
			if _, err := os.Lstat(target); err == nil {
				return nil
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		return copyFile(path, target)
	})
}

// ReplaceTree는 dst를 지운 뒤 src를 새로 복사합니다.
func ReplaceTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	return CopyTree(src, dst, false)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Exists는 path 존재 여부를 반환합니다.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
