// Package apperr classifies service failures so that handlers can report them consistently.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// invalidTextRepresentation Postgres 无法解析输入值 (如非法 uuid)
const invalidTextRepresentation = "22P02"

// Kind 错误类别
type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// Error 带类别的业务错误
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Transient 包装未分类的底层错误 (网络、数据库等)。
// 数据库拒绝解析的 id 不可能存在，归为 NotFound。
func Transient(msg string, err error) error {
	if malformedID(err) {
		return &Error{Kind: KindNotFound, Msg: msg, Err: err}
	}
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

func malformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

// FromStore 将仓储层错误转换为业务错误
func FromStore(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Msg: msg, Err: err}
	}
	return Transient(msg, err)
}

// KindOf 返回错误类别，非 *Error 视为 Transient
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

func IsValidation(err error) bool    { return err != nil && KindOf(err) == KindValidation }
func IsAuthorization(err error) bool { return err != nil && KindOf(err) == KindAuthorization }
func IsNotFound(err error) bool      { return err != nil && KindOf(err) == KindNotFound }
