package commands

const (
	_etc = "/usr/local/etc/dataextract"
	_var = "/usr/local/var/dataextract"

	DEFAULT_WORKDIR = _var
	DEFAULT_CONFIG  = _etc + "/dataextract.yaml"
)
