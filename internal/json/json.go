// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package json

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	Marshal       = json.Marshal
	Unmarshal     = json.Unmarshal
	MarshalIndent = json.MarshalIndent
	Valid         = json.Valid
)

// RawMessage 与 encoding/json.RawMessage 等价。
type RawMessage = jsoniter.RawMessage

func NewEncoder(w io.Writer) *jsoniter.Encoder {
	return json.NewEncoder(w)
}

func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return json.NewDecoder(r)
}

// MarshalToString 序列化为字符串，常用于写入 Redis/etcd 的值。
func MarshalToString(v any) (string, error) {
	return json.MarshalToString(v)
}

func UnmarshalFromString(s string, v any) error {
	return json.UnmarshalFromString(s, v)
}
