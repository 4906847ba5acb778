// Copyright 2026 uoloki. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

/*
Package dataextract harvests metadata from Microsoft platform services into workbooks that an operator
reviews before a reduced copy is produced.

dataextract can be used from the command line but is really intended to be run from a cron job. Each
enabled source (Microsoft Graph, Microsoft Purview, the Azure Blockchain service and an SCCM inventory
database) is written to a 'full' workbook with a '_Y' marker column after every column. Clearing the
markers of the unwanted columns and running 'filter' writes a 'filtered' workbook with only the
columns that are still marked.

dataextract supports the following commands:

  - run, to acquire every source and write the full and filtered workbooks
  - acquire, to acquire every source and write the full workbooks for review
  - filter, to write the filtered workbooks from the reviewed full workbooks
  - export, to write a worksheet as a TSV file
  - publish, to upload a full workbook to a Google Sheets spreadsheet for review
  - pull, to download a reviewed Google Sheets spreadsheet to a full workbook
  - authorise, to authorise access to the Google Sheets spreadsheets
  - archive, to upload the workbooks to Azure Blob Storage
  - version, to display the current version
*/
package dataextract
