// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"io/ioutil"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// FetchJSON performs a GET against url and decodes the JSON reply
// into reply. The driver's status enquiry uses it against a running
// instance's status page; it is deliberately simpler than the
// transport's own Do path because it never leaves the local machine.
func FetchJSON(client *http.Client, url string, reply interface{}) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if nil != err {
		return err
	}

	response, err := client.Do(request)
	if nil != err {
		return err
	}
	defer response.Body.Close()

	body, err := ioutil.ReadAll(response.Body)
	if nil != err {
		return err
	}

	if http.StatusOK != response.StatusCode {
		return fmt.Errorf("status: %d %q on: %q", response.StatusCode, response.Status, url)
	}
	return jsoniter.Unmarshal(body, reply)
}
