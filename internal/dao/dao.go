package dao

import "errors"

// ErrNotFound 记录不存在，query 与 memory 实现统一返回
var ErrNotFound = errors.New("record not found")
