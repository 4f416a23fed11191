package datasets

import (
	"bufio"
	"bytes"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// asciiSpace is the set of bytes stripped from both ends of every line.
const asciiSpace = " \t\n\r\v\f"

// maxLineSize bounds the length of a single caption or image reference.
const maxLineSize = 1 << 20

// readLines reads path and returns its lines with surrounding ASCII white
// space removed. A leading byte order mark is dropped; other bytes are kept
// as they are.
func readLines(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := transform.NewReader(file, unicode.BOMOverride(transform.Nop))
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines [][]byte
	for scanner.Scan() {
		line := bytes.Trim(scanner.Bytes(), asciiSpace)
		lines = append(lines, bytes.Clone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	return lines, nil
}

// splitFiles returns the caption and image list paths of split. Paths are
// the plain concatenation of dataPath and the file name.
func splitFiles(dataPath string, split Split) (captions, images string) {
	suffix := "_verify.txt"
	if split == Test {
		suffix = ".txt"
	}
	captions = dataPath + string(split) + "_caps" + suffix
	images = dataPath + string(split) + "_filename" + suffix
	return
}

// ReadCaptions returns the raw captions of split under dataPath, e.g. to
// build a vocabulary.
func ReadCaptions(dataPath string, split Split) ([][]byte, error) {
	capsPath, _ := splitFiles(dataPath, split)
	captions, err := readLines(capsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read captions of split %q", split)
	}
	return captions, nil
}

// redundancyDivisor returns how many consecutive captions share one image.
func redundancyDivisor(numCaptions, numImages int) int {
	if numImages != numCaptions {
		return 5
	}
	return 1
}
