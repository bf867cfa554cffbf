package service

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrProvisioningConflict = errors.New("provisioning conflict")
	ErrRemote               = errors.New("remote error")
	ErrPersistence          = errors.New("persistence error")
)

// Error is a classified service failure. Message is safe to show to end
// users; Err carries the internal cause for logs.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// UserMessage returns the end-user message of err, or a generic one for
// unclassified errors.
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return msgInternal
}

// User-facing messages
const (
	msgUnauthorized     = "Unauthorized"
	msgInternal         = "Terjadi kesalahan internal"
	msgUsernameRequired = "Username wajib diisi"
	msgInvalidUsername  = "Username hanya boleh berisi huruf, angka, titik, garis bawah dan tanda hubung"
	msgInvalidLimits    = "RAM, CPU dan disk tidak boleh negatif"
	msgServerNotFound   = "Server tidak ditemukan"
	msgPanelNotFound    = "Panel tidak ditemukan atau Anda tidak memiliki akses"
	msgUserConflict     = "Username sudah digunakan di Pterodactyl"
	msgCreateUserFailed = "Gagal membuat user di Pterodactyl"
	msgCreateServerFail = "Gagal membuat server di Pterodactyl"
	msgSavePanelFailed  = "Gagal menyimpan panel ke database"
	msgDeletePanelFail  = "Gagal menghapus panel dari database"
	msgPanelCreated     = "Panel berhasil dibuat di Pterodactyl!"
	msgPanelDeleted     = "Panel berhasil dihapus dari Pterodactyl dan database!"
	msgQuotaPanels      = "Batas jumlah panel untuk akun Anda telah tercapai"
	msgPrivateServer    = "Server private hanya tersedia untuk akun premium"
	msgInvalidInstance  = "Data server tidak valid"
	msgInvalidRole      = "Role tidak valid"
	msgLoadFailed       = "Gagal memuat data"
)

// PanelCreatedMessage and PanelDeletedMessage are the success messages of
// the provision and deprovision endpoints.
const (
	PanelCreatedMessage = msgPanelCreated
	PanelDeletedMessage = msgPanelDeleted
)
