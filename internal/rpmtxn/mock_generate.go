package rpmtxn

//go:generate -command mockgen mockgen -package=rpmtxnmock -self_package=github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn/rpmtxnmock
//go:generate mockgen -destination=./rpmtxnmock/database_mock.go github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn Database
//go:generate mockgen -destination=./rpmtxnmock/set_mock.go github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn Set
//go:generate mockgen -destination=./rpmtxnmock/keystore_mock.go github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn KeyStore
