// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/toolproto/proto/internal/logging"
)

// NewRetryable is a variant of [NewWithOptions] that automatically retries
// requests that fail with certain transient errors, up to
// opts.RetryCount times.
//
// This is the client used for every plugin, artifact and checksum
// download.
func NewRetryable(ctx context.Context, opts Options) (*retryablehttp.Client, error) {
	baseClient, err := NewWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	retryableClient := retryablehttp.NewClient()
	retryableClient.HTTPClient = baseClient
	retryableClient.RetryMax = opts.RetryCount
	retryableClient.RequestLogHook = requestLogHook
	retryableClient.ErrorHandler = maxRetryErrorHandler
	retryableClient.Logger = logging.HCLogger()

	return retryableClient, nil
}

func requestLogHook(logger retryablehttp.Logger, req *http.Request, i int) {
	if i > 0 {
		logger.Printf("[INFO] Failed request to %s; retrying", req.URL.String())
	}
}

func maxRetryErrorHandler(resp *http.Response, err error, numTries int) (*http.Response, error) {
	// Close the body per library instructions
	if resp != nil {
		resp.Body.Close()
	}

	// We will never have both a response and an error.
	var errMsg string
	if resp != nil {
		errMsg = fmt.Sprintf(": %s returned from %s", resp.Status, resp.Request.URL)
	} else if err != nil {
		errMsg = fmt.Sprintf(": %s", err)
	}

	// This function is always called with numTries=RetryMax+1.
	if numTries > 1 {
		return resp, fmt.Errorf("request failed after %d attempts%s",
			numTries, errMsg)
	}
	return resp, fmt.Errorf("request failed%s", errMsg)
}
