// Copyright © 2024 Meroxa, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cerrors

import "fmt"

// fatalError marks an error as non-retryable: something the caller should
// give up on rather than try again.
type fatalError struct {
	err error
}

// FatalError wraps err so that IsFatalError reports true for it. Wrapping an
// error that is already fatal (even nested behind further wrapping) returns
// it unchanged rather than nesting another layer. FatalError(nil) is nil.
func FatalError(err error) error {
	if err == nil {
		return nil
	}
	if IsFatalError(err) {
		return err
	}
	return &fatalError{err: err}
}

// Unwrap returns the wrapped error.
func (f *fatalError) Unwrap() error {
	return f.err
}

// Error returns the error message.
func (f *fatalError) Error() string {
	return fmt.Sprintf("fatal error: %v", f.err)
}

// IsFatalError reports whether err is, or wraps, a fatal error.
func IsFatalError(err error) bool {
	var fe *fatalError
	return As(err, &fe)
}
