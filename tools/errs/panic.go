package errs

import "fmt"

func ErrPanic(r any) error {
	if r == nil {
		return nil
	}
	return NewCodeError(ServerInternalError, "panic error").WrapMsg(nil, fmt.Sprint(r))
}
