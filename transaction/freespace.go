package transaction

import "golang.org/x/sys/unix"

// DiskFreeSpacer implements [FreeSpacer] via statfs(2), the default
// check_free_space() backend. Grounded on the teacher pack's platform-syscall
// usage of golang.org/x/sys/unix (claircore's libindex/tempfile_linux.go,
// toolkit/spool/os_linux.go); like lock.Manager's /proc inspection, this
// assumes a Linux host, consistent with the rest of this module.
type DiskFreeSpacer struct{}

// FreeBytes returns the number of bytes available to an unprivileged user
// on the filesystem holding dir.
func (DiskFreeSpacer) FreeBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
