/*
Package config loads bucketfs configuration from YAML files and environment
variables.

Sources are applied in order, later ones winning:

	NewDefault()            compiled-in defaults
	LoadFromFile(path)      YAML document
	LoadFromEnv()           BUCKETFS_* variables

Validate reports every problem at once rather than stopping at the first.

Example configuration:

	global:
	  log_level: INFO
	  log_format: json
	storage:
	  bucket: my-bucket
	  region: cn-hangzhou
	  endpoint: https://oss-cn-hangzhou.aliyuncs.com
	  force_path_style: false
	namespace:
	  root_prefix: data
	  leading_slash: true
	  delete_batch_size: 1000
	  concurrency: 4
	stream:
	  block_size: 5MB
	  part_size: 8MB
	monitoring:
	  metrics:
	    enabled: true
	    address: ":9090"

The storage endpoint may also come from OSS_ENDPOINT. Endpoints without a
scheme are treated as https.
*/
package config
