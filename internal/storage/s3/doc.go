/*
Package s3 serves the network tier from objects in an S3 bucket.

Each cache key maps to the object prefix+key. The source only issues
GetObject; a missing object is reported as not-found rather than an error,
so the coordinator records a plain miss.

	src, err := s3.NewFromConfig(ctx, &s3.Config{
		Bucket: "layout-cache",
		Prefix: "tiercache/",
		Region: "us-west-2",
	})
	if err != nil {
		return err
	}
	c, err := cache.New(ctx, cache.Options{
		Network: &cache.NetworkOptions{Source: src, Name: "s3"},
	})

S3-compatible stores such as MinIO work with Endpoint and ForcePathStyle.
*/
package s3
