// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package s3

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "00000001/00000000", encode(1))
	assert.Equal(t, "00000002/00000001", encode(1<<32+2))
}

func TestBucketFromPath(t *testing.T) {
	tests := []struct {
		path   string
		bucket string
		ok     bool
	}{
		{"s3://bcomp", "bcomp", true},
		{"s3://bcomp/", "bcomp", true},
		{"s3://", "", false},
		{"/dev/sdb", "", false},
	}

	for _, tt := range tests {
		bucket, ok := BucketFromPath(tt.path)
		assert.Equal(t, tt.bucket, bucket, tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(awserr.New(s3.ErrCodeNoSuchKey, "gone", nil)))
	assert.False(t, isNotFound(awserr.New("SlowDown", "later", nil)))
	assert.False(t, isNotFound(errors.New("plain")))
	assert.False(t, isNotFound(nil))
}
