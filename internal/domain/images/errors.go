package images

import "errors"

// Error taxonomy untuk workflow upload -> analyze -> persist -> list.
// Semua error infra dibungkus salah satu sentinel ini sebelum naik ke HTTP.
var (
	// ErrIssuanceFailed object store unreachable/misconfigured saat presign
	ErrIssuanceFailed = errors.New("upload url issuance failed")

	// ErrObjectNotFound object yang direferensikan tidak ada di bucket
	ErrObjectNotFound = errors.New("object not found")

	// ErrAnalysisFailed vision service error/timeout, tidak ada record tertulis
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrPersistenceFailed analisa sukses tapi write ke record store gagal;
	// hasil tetap dikembalikan ke caller, history entry tidak boleh diasumsikan ada
	ErrPersistenceFailed = errors.New("analysis persistence failed")

	// ErrReadFailed record store unavailable saat listing history
	ErrReadFailed = errors.New("history read failed")
)
