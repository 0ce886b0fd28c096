package middleware

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/pipeline"
)

// Upload returns the stage that extracts multipart/form-data payloads. Text
// fields are merged into the parsed body and files are kept per field name.
// A file larger than maxFileBytes fails the request; zero disables the check.
func Upload(maxFileBytes int64) pipeline.Stage {
	return pipeline.Stage{
		Name: StageUpload,
		Run: func(c echo.Context) pipeline.Outcome {
			ctype := c.Request().Header.Get(echo.HeaderContentType)
			if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
				return pipeline.Continue()
			}

			form, err := c.MultipartForm()
			if err != nil {
				return pipeline.Fail(readError(err))
			}

			body := pipeline.Body(c)
			for k, vs := range form.Value {
				if len(vs) > 0 {
					body[k] = vs[0]
				}
			}

			files := make(map[string][]*multipart.FileHeader, len(form.File))
			for field, fhs := range form.File {
				for _, fh := range fhs {
					if maxFileBytes > 0 && fh.Size > maxFileBytes {
						return pipeline.Fail(apperr.Validation(
							fmt.Sprintf("Please upload a file less than %d bytes", maxFileBytes)))
					}
				}
				files[field] = fhs
			}
			pipeline.SetFiles(c, files)
			return pipeline.Continue()
		},
	}
}
